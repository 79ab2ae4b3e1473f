package mocks

import (
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/stretchr/testify/mock"
)

type NotifierMock struct {
	mock.Mock
}

func (n *NotifierMock) Notify(summary entities.RunSummary) error {
	args := n.Called(summary)
	return args.Error(0)
}
