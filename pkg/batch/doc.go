// Package batch implements the batch state machine: a bulk operation over
// many target ids is decomposed into a batch row, three job definitions
// (seed, monitor, execution) and a self-perpetuating seed job that fans out
// execution jobs in bounded chunks. A monitor job polls for completion and
// finally removes the batch.
package batch
