package network

import (
	"encoding/json"

	"github.com/pkg/errors"
)

const (
	queueName             = "tour-import-folder-events"
	ExchangeFolderEvents  = "tour.import.folder"
	BindingKeyFolderEvent = "folder.changed"
)

type Subscriber interface {
	SubscribeToFolderEvents(msgChan chan InMsg) error
}

type msgSubscriber struct {
	amqp Messaging
}

func NewMsgSubscriber(amqp Messaging) Subscriber {
	return &msgSubscriber{amqp}
}

func (ms *msgSubscriber) SubscribeToFolderEvents(msgChan chan InMsg) error {
	return ms.amqp.OnMessage(msgChan, queueName, ExchangeFolderEvents, exchangeTypeDirect, BindingKeyFolderEvent)
}

// DecodeFolderEvent parses a folder event delivery.
func DecodeFolderEvent(msg InMsg) (FolderEvent, error) {
	var event FolderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return FolderEvent{}, errors.Wrap(err, "decode folder event")
	}
	if event.DeviceFolder == "" {
		return FolderEvent{}, errors.New("folder event without deviceFolder")
	}
	return event, nil
}
