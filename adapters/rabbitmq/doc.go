/*
Package rabbitmq provides a RabbitMQ endpoint.Transport.
Topics map to routing keys on a topic exchange. The AMQP connection-backed client
reconnects with exponential backoff and restores its consumers after a reconnect.
*/
package rabbitmq
