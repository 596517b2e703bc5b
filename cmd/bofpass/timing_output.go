package main

import (
	"fmt"
	"io"
	"time"

	"bofpass/internal/pipeline"
)

// printStageTimings prints the pipeline stages that ran. Per-file stages
// are summed over all modules.
func printStageTimings(out io.Writer, timings pipeline.Timings) {
	if out == nil {
		return
	}
	labels := map[pipeline.Stage]string{
		pipeline.StageIndex:   "indexed",
		pipeline.StageLoad:    "loaded",
		pipeline.StageRewrite: "renamed",
		pipeline.StageWrite:   "wrote",
	}
	for _, stage := range pipeline.Stages {
		if !timings.Has(stage) {
			continue
		}
		fmt.Fprintf(out, "%s %.1f ms\n", labels[stage], toMillis(timings.Duration(stage)))
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
