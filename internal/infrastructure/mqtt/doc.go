// Package mqtt provides MQTT connectivity for tickerbox.
//
// MQTT is optional. When enabled it carries three kinds of traffic:
//
//   - tickerbox/system/status: retained online/offline presence, with a
//     Last Will so the broker reports an unexpected disconnect
//   - tickerbox/system/health: retained supervisor component stats
//   - <stream prefix>/<topic>: items fed by an external bridge process when
//     the mqtt stream backend is selected
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.StreamItem("tickerbox/stream", "golang"), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
//
// Handlers run on paho's goroutines. A panicking handler is recovered and
// logged through the Logger set with SetLogger.
//
// Subscriptions are tracked and restored after every reconnect.
package mqtt
