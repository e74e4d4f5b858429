// Package logx configures noticer's structured logging.
//
// A small Logger value wraps zerolog so components carry fixed fields
// (comp=scheduler, task_id=...) and survive sink swaps on config reload:
//   - Console output with short timestamp and file:line caller
//   - File output as JSON lines
//   - Optional chat sink mirroring WARN+ lines to the notification channel
package logx
