package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/logging"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	exchangeTypeDirect = "direct"
	exchangeTypeFanout = "fanout"

	durable          = true
	deleteWhenUnused = false
	exclusive        = false
	noWait           = false
	internal         = false
	noAck            = true
	noLocal          = false
	consumerTag      = ""
)

// Messaging is the broker surface used by publishers and subscribers.
type Messaging interface {
	Start(ctx context.Context) error
	Stop()
	OnMessage(msgChan chan InMsg, queueName, exchangeName, exchangeType, key string) error
	PublishPersistentMessage(exchange, exchangeType, key string, data interface{}, options *MessageOptions) error
}

// ErrNotConnected is returned when the broker session is not open.
var ErrNotConnected = errors.New("not connected to broker")

// AMQP is a reconnecting broker session. conn and channel are replaced on
// reconnection and guarded by connLock.
type AMQP struct {
	url               string
	connLock          sync.RWMutex
	conn              *amqp.Connection
	channel           *amqp.Channel
	declaredExchanges map[string]struct{}
	exchangeLock      sync.Mutex
	log               *logrus.Entry
}

type InMsg struct {
	Exchange      string
	RoutingKey    string
	ReplyTo       string
	CorrelationID string
	Headers       map[string]interface{}
	Body          []byte
}

// MessageOptions represents the message publishing options
type MessageOptions struct {
	CorrelationID string
	ReplyTo       string
	Expiration    string
}

func NewAMQP(url string, log *logrus.Entry) *AMQP {
	if log == nil {
		log = logging.Discard()
	}
	return &AMQP{url: url, declaredExchanges: make(map[string]struct{}), log: log}
}

// Start connects with exponential backoff until ctx is done.
func (a *AMQP) Start(ctx context.Context) error {
	err := backoff.Retry(a.connect, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
	if err != nil {
		return errors.Wrap(err, "connect to broker")
	}
	go a.notifyWhenClosed()
	return nil
}

func (a *AMQP) Stop() {
	conn, channel := a.session()
	if channel != nil {
		defer channel.Close()
	}
	if conn != nil && !conn.IsClosed() {
		defer conn.Close()
	}
}

func (a *AMQP) session() (*amqp.Connection, *amqp.Channel) {
	a.connLock.RLock()
	defer a.connLock.RUnlock()
	return a.conn, a.channel
}

func (a *AMQP) setSession(conn *amqp.Connection, channel *amqp.Channel) {
	a.connLock.Lock()
	defer a.connLock.Unlock()
	a.conn = conn
	a.channel = channel
}

func (a *AMQP) openChannel() (*amqp.Channel, error) {
	_, channel := a.session()
	if channel == nil {
		return nil, ErrNotConnected
	}
	return channel, nil
}

func (a *AMQP) OnMessage(msgChan chan InMsg, queueName, exchangeName, exchangeType, key string) error {
	channel, err := a.openChannel()
	if err != nil {
		return err
	}
	if err := declareExchange(channel, exchangeName, exchangeType); err != nil {
		return err
	}
	if err := declareQueue(channel, queueName); err != nil {
		return err
	}
	if err := channel.QueueBind(queueName, key, exchangeName, noWait, nil); err != nil {
		return err
	}

	deliveries, err := channel.Consume(
		queueName,
		consumerTag,
		noAck,
		exclusive,
		noLocal,
		noWait,
		nil, // arguments
	)
	if err != nil {
		return err
	}

	go convertDeliveryToInMsg(deliveries, msgChan)
	return nil
}

func (a *AMQP) PublishPersistentMessage(exchange, exchangeType, key string, data interface{}, options *MessageOptions) error {
	var corrID, expTime, replyTo string
	if options != nil {
		corrID = options.CorrelationID
		replyTo = options.ReplyTo
		expTime = options.Expiration
	}

	body, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "encoding JSON message")
	}

	channel, err := a.openChannel()
	if err != nil {
		return err
	}
	if !a.exchangeAlreadyDeclared(exchange) {
		if err := declareExchange(channel, exchange, exchangeType); err != nil {
			return errors.Wrap(err, "declaring exchange")
		}
		a.exchangeLock.Lock()
		a.declaredExchanges[exchange] = struct{}{}
		a.exchangeLock.Unlock()
	}

	err = channel.PublishWithContext(
		context.Background(),
		exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: corrID,
			ReplyTo:       replyTo,
			Body:          body,
			Expiration:    expTime,
			Timestamp:     time.Now(),
		},
	)
	if err != nil {
		return errors.Wrap(err, "publishing message in channel")
	}
	return nil
}

func (a *AMQP) exchangeAlreadyDeclared(exchangeName string) bool {
	a.exchangeLock.Lock()
	defer a.exchangeLock.Unlock()
	_, ok := a.declaredExchanges[exchangeName]
	return ok
}

func (a *AMQP) notifyWhenClosed() {
	conn, _ := a.session()
	if conn == nil {
		return
	}
	errReason := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if errReason == nil {
		return
	}
	a.log.Warnf("broker connection closed: %v", errReason)

	reconnectionBackOff := backoff.NewExponentialBackOff()
	reconnectionBackOff.InitialInterval = 30 * time.Second
	reconnectionBackOff.MaxInterval = 5 * time.Minute
	reconnectionBackOff.Multiplier = 1.7
	reconnectionBackOff.MaxElapsedTime = 0

	reconnection := func() error {
		if err := a.connect(); err != nil {
			a.log.Errorf("reconnect failed, retrying in %s: %v", reconnectionBackOff.NextBackOff(), err)
			return err
		}
		a.exchangeLock.Lock()
		a.declaredExchanges = make(map[string]struct{})
		a.exchangeLock.Unlock()
		a.log.Info("reconnected to broker")
		return nil
	}

	if err := backoff.Retry(reconnection, reconnectionBackOff); err != nil {
		return
	}
	go a.notifyWhenClosed()
}

func (a *AMQP) connect() error {
	conn, err := amqp.Dial(a.url)
	if err != nil {
		return err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	a.setSession(conn, channel)
	return nil
}

func declareExchange(channel *amqp.Channel, name, exchangeType string) error {
	return channel.ExchangeDeclare(
		name,
		exchangeType,
		durable,
		deleteWhenUnused,
		internal,
		noWait,
		nil, // arguments
	)
}

func declareQueue(channel *amqp.Channel, name string) error {
	_, err := channel.QueueDeclare(
		name,
		durable,
		deleteWhenUnused,
		exclusive,
		noWait,
		nil, // arguments
	)
	return err
}

func convertDeliveryToInMsg(deliveries <-chan amqp.Delivery, outMsg chan InMsg) {
	for d := range deliveries {
		outMsg <- InMsg{d.Exchange, d.RoutingKey, d.ReplyTo, d.CorrelationId, d.Headers, d.Body}
	}
}
