// Command unfurler runs the link unfurling service: it consumes link
// events, scrapes the referenced posts, renders rich previews, and
// delivers them back to the chat platform.
package main
