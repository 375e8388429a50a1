// Package mqtt publishes monitor state to an MQTT broker.
//
// Each tracked monitor gets a retained JSON document on
// <prefix>/<id>/state. Removal clears the retained message with an empty
// payload. Availability of the daemon itself is reported on <prefix>/status,
// with a last-will message covering unexpected disconnects.
package mqtt
