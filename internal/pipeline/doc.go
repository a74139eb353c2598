// Package pipeline runs the jobs of a batch file one after another.
//
// Each job is a complete crawl with its own configuration, output sink and
// RunSummary. A failing job is recorded in its summary and the batch moves
// on to the next one, unless the processor is told to stop on error.
//
// Jobs run sequentially by default because they share the data directory
// and often the same sites; WithConcurrency allows overlapping jobs when
// their outputs are independent.
package pipeline
