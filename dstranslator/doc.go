// Package dstranslator implements a Discord bot that relays messages to
// an external AI translation provider, and manages per-channel scheduled
// role-ping events.
//
// Two subsystems share the inbound message stream:
//
//   - Translation: members holding the configured "Translator" role get
//     their messages automatically translated to English, replied
//     in-thread. Anyone can reply to a message with `!en` or
//     `!t <language>` to translate it explicitly.
//   - Scheduling: `!schedule`, `!events` and `!cancel` manage pending
//     role pings per channel, fired by a periodic due-check loop.
//
// DSTranslator is the main struct wiring the Discord gateway session,
// the provider client, the scheduler and the database together. The
// translation provider is any OpenAI-compatible chat completion
// endpoint; events persist in SQLite or PostgreSQL via GORM, so
// pending pings survive restarts when the database is file-backed.
package dstranslator
