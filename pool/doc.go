// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable scratch buffers for handle read and receive loops. A buffer
// handed to onread or onmessage is only valid until the callback
// returns; the next iteration overwrites it.
package pool
