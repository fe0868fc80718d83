// Package logx configures spawnbot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - A bounded in-memory ring sink the status surface can snapshot
package logx
