// Package discord adapts a Discord channel's message history to the ingest
// Source interface using discordgo's REST client.
package discord
