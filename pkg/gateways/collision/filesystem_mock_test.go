package collision

import "github.com/stretchr/testify/mock"

type fileManagementMock struct {
	mock.Mock
}

func (fm *fileManagementMock) exists(path string) (bool, error) {
	args := fm.Called(path)
	return args.Bool(0), args.Error(1)
}

func (fm *fileManagementMock) ensureDir(path string) error {
	args := fm.Called(path)
	return args.Error(0)
}

func (fm *fileManagementMock) move(source, target string) error {
	args := fm.Called(source, target)
	return args.Error(0)
}

func (fm *fileManagementMock) copyFile(source, target string) error {
	args := fm.Called(source, target)
	return args.Error(0)
}
