// Package tgui provides small helpers for building Telegram UI:
// inline keyboards, callback payload encoding, and HTML-safe text.
package tgui
