// Package dispatch runs assembled plugins.
//
// Background plugins each get their own goroutine and execute once at
// startup. Hotkey plugins execute from a single loop that receives hotkey
// events and API trigger requests, so at most one of them runs at a time.
//
// Key features:
//   - Serial FIFO dispatch of hotkey presses (a press waits for the running execution)
//   - Optional per-execution timeout (service.execute_timeout)
//   - Failure policy: continue (log and keep polling) or exit (stop Run with the error)
//   - Every execution is journaled and published on the events hub
//
// Error handling:
//   - Hotkey id with no plugin → logged, hotkey.unbound event, loop continues
//   - Plugin returns an error → failed status
//   - Timeout → timed_out status
//   - Trigger of an unknown name → ErrUnknownPlugin
//   - Trigger of a background plugin → ErrNotTriggerable
package dispatch
