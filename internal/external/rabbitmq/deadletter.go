package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	model "github.com/glkeru/gamification/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

const queue = "deadletters"

// DeadLetterPublisher parks undeliverable events on a rabbit queue for
// operator review and replay.
type DeadLetterPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewDeadLetterPublisher() (rabbit *DeadLetterPublisher, err error) {
	// config
	rabbiturl := os.Getenv("RABBIT_URL")
	if rabbiturl == "" {
		return nil, fmt.Errorf("env RABBIT_URL is not set")
	}
	rabbitport := os.Getenv("RABBIT_PORT")
	if rabbitport == "" {
		return nil, fmt.Errorf("env RABBIT_PORT is not set")
	}
	rabbituser := os.Getenv("RABBIT_USER")
	if rabbituser == "" {
		return nil, fmt.Errorf("env RABBIT_USER is not set")
	}
	rabbitpass := os.Getenv("RABBIT_PASSWORD")
	if rabbitpass == "" {
		return nil, fmt.Errorf("env RABBIT_PASSWORD is not set")
	}

	rabbitconn := "amqp://" + rabbituser + ":" + rabbitpass + "@" + rabbiturl + ":" + rabbitport + "/gamification"
	conn, err := amqp.Dial(rabbitconn)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &DeadLetterPublisher{conn, ch}, nil
}

func (r *DeadLetterPublisher) Close() {
	r.ch.Close()
	r.conn.Close()
}

type deadLetter struct {
	Subscriber string      `json:"subscriber"`
	Error      string      `json:"error"`
	Event      model.Event `json:"event"`
}

func (r *DeadLetterPublisher) DeadLetter(ctx context.Context, subscriber string, ev model.Event, cause error) error {
	body, err := json.Marshal(deadLetter{
		Subscriber: subscriber,
		Error:      cause.Error(),
		Event:      ev,
	})
	if err != nil {
		return err
	}

	err = r.ch.PublishWithContext(ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return err
	}
	return nil
}
