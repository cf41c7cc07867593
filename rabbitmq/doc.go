// Package rabbitmq forwards dispatched events to a RabbitMQ exchange with
// publisher confirms and bounded retry.
package rabbitmq
