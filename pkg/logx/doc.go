// Package logx is furlat's structured logging layer.
//
// It wraps zerolog behind a small value-type Logger so components can carry
// fixed fields (comp=runner, category=google, ...) and so the output sinks can
// be swapped at runtime when the config file changes:
//   - console: short timestamp + short caller
//   - file: JSON lines
//   - telegram: warnings and errors pushed to an operator chat, rate limited
package logx
