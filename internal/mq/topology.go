package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// 对账队列订阅的路由键
const reconcileBindingKey = "order.*"

// DeclareTopology 声明事件交换机、死信交换机/队列以及台账对账队列，可重复调用
func (cm *ConnectionManager) DeclareTopology(topo *TopologyConfig) error {
	return cm.channelPool.WithChannel(func(ch *amqp.Channel) error {
		return declareTopology(ch, topo)
	})
}

func declareTopology(ch *amqp.Channel, topo *TopologyConfig) error {
	if err := ch.ExchangeDeclare(topo.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", topo.Exchange, err)
	}

	args := amqp.Table{}
	if topo.DLXExchange != "" {
		if err := ch.ExchangeDeclare(topo.DLXExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead letter exchange: %w", err)
		}
		if _, err := ch.QueueDeclare(topo.DLQ, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead letter queue: %w", err)
		}
		if err := ch.QueueBind(topo.DLQ, "", topo.DLXExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind dead letter queue: %w", err)
		}
		args["x-dead-letter-exchange"] = topo.DLXExchange
	}

	if _, err := ch.QueueDeclare(topo.ReconcileQueue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topo.ReconcileQueue, err)
	}
	if err := ch.QueueBind(topo.ReconcileQueue, reconcileBindingKey, topo.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", topo.ReconcileQueue, err)
	}
	return nil
}
