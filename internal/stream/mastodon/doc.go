// Package mastodon is a stream.Source backed by a Mastodon server.
//
// Items come from the WebSocket streaming API, one hashtag stream per
// tracked topic on a single connection. Account metrics come from the REST
// account lookup endpoint. Status HTML is flattened to plain text.
package mastodon
