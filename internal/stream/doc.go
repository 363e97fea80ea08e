// Package stream defines the contract between tickerbox and an external
// event source.
//
// A Source opens a Stream for a set of topics and answers point lookups
// about an account. A Stream is read with a blocking Next that returns
// either an Item or an error; source-level failures are reported as a
// *Fault so the watcher can tell a rate limit from a dropped connection.
//
// Backends live in subpackages: mastodon (WebSocket streaming API) and
// mqttsource (items relayed over MQTT by a bridge process).
package stream
