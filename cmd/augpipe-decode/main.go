// Command augpipe-decode inspects a batch log written by augpipe: it walks
// the records, decodes each frame and prints per-batch summaries, so a
// recorded run can be checked without replaying it.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"augpipe-go/internal/batch"
	"augpipe-go/internal/batchlog"
	"augpipe-go/internal/simulator"
)

func main() {
	var (
		path  = pflag.String("path", "", "Path to a batch log .bin file")
		limit = pflag.Int("limit", 5, "Max number of batches to summarize; 0 prints all")
	)
	pflag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "missing --path")
		os.Exit(1)
	}

	r, err := batchlog.NewReader(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open batch log: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	var count, images, keypoints, decodeErrors int
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "read record: %v\n", err)
			os.Exit(1)
		}

		b, err := batch.Decode(rec.Frame)
		if err != nil {
			decodeErrors++
			fmt.Printf("record %d: decode error: %v\n", count, err)
			count++
			continue
		}

		images += len(b.ImagesAug)
		for _, ks := range b.KeypointsAug {
			keypoints += len(ks.Points)
		}

		if *limit <= 0 || count < *limit {
			fmt.Printf("batch %d recorded=%s\n", count, rec.Timestamp.Format(time.RFC3339Nano))
			if len(b.ImagesAug) > 0 {
				im := b.ImagesAug[0]
				fmt.Printf("  images: %d (%dx%dx%d)\n", len(b.ImagesAug), im.Width, im.Height, im.Channels)
			}
			if len(b.ImagesGTAug) > 0 {
				fmt.Printf("  ground truth: %d (masks: %d)\n", len(b.ImagesGTAug), len(b.MaskGTAug))
			}
			if len(b.KeypointsAug) > 0 {
				fmt.Printf("  keypoint sets: %d\n", len(b.KeypointsAug))
			}
			if meta, err := simulator.DecodeMeta(b.Data); err == nil && meta.ID != "" {
				fmt.Printf("  meta: seq=%d id=%s\n", meta.Seq, meta.ID)
			}
		}
		count++
	}

	fmt.Printf("summary: batches=%d images=%d keypoints=%d decode_errors=%d\n",
		count, images, keypoints, decodeErrors)
}
