// Package pipeline runs a fetched page through the steps that turn it into
// stored results: parse, correlate, discover and persist.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. Each step can be tested against fakes of the others
//
// The scheduler owns concurrency. A Pipeline processes one page at a time
// and is safe to share between workers because steps keep no per-page state.
package pipeline
