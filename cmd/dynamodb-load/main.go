package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/guregu/dynamo"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/tckz/go-datagen/internal/generate"
	"github.com/tckz/go-datagen/internal/shard"
)

var (
	optTable          = flag.String("table", "", "table name to load to")
	optPartitionKey   = flag.String("partition-key", "", "prefix of partition key")
	optSplitPartition = flag.Int64("split-partition", 10, "number of partitions to split")
	optSequence       = flag.Int64("sequence", 0, "sequence number to start from")
	optPutWorkers     = flag.Int("put-workers", 10, "number of workers to put items")
	optSamePartition  = flag.Bool("same-partition-batch", false, "each batch holds items of one partition only")
	optChanLength     = flag.Int("chan-length", 100, "length of channel to put items")
	optVersion        = flag.Bool("version", false, "show version")
)

var version string

type Record struct {
	Code      string                 `dynamo:"code"`
	Seq       int64                  `dynamo:"seq"`
	ID        string                 `dynamo:"id"`
	Kind      string                 `dynamo:"kind"`
	Content   map[string]interface{} `dynamo:"content"`
	CreatedAt int64                  `dynamo:"created_at"`
	UpdatedAt int64                  `dynamo:"updated_at"`
}

func main() {
	flag.Parse()

	if *optVersion {
		fmt.Println(version)
		return
	}

	if err := run(); err != nil {
		log.Fatalf("*** %v", err)
	}
}

func run() error {
	if *optTable == "" {
		return errors.New("--table must be specified")
	}
	if *optPartitionKey == "" {
		return errors.New("--partition-key must be specified")
	}
	if *optSplitPartition < 1 {
		return errors.New("--split-partition must be at least 1")
	}
	if *optSamePartition && int64(*optPutWorkers) < *optSplitPartition {
		return errors.New("--put-workers must be greater than --split-partition")
	}

	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))

	cli := dynamo.NewFromIface(dynamodb.New(sess))

	ctx := context.Background()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	from := time.Now()
	seq := *optSequence

	// one channel shared by every worker, or one per partition
	chPuts := make([]chan Record, 1)
	if *optSamePartition {
		chPuts = make([]chan Record, *optSplitPartition)
	}

	egPut, ctxPut := errgroup.WithContext(ctx)
	for i := 0; i < *optPutWorkers; i++ {
		index := i % len(chPuts)
		chPut := chPuts[index]
		if chPut == nil {
			chPut = make(chan Record, *optChanLength)
			chPuts[index] = chPut
		}
		ctx := ctxPut
		egPut.Go(func() (retErr error) {
			count := 0
			defer func() {
				if retErr != nil {
					cancel()
				}
				log.Printf("[%d]put: done: count=%s, err=%v", i, humanize.Comma(int64(count)), retErr)
			}()

			// https://docs.aws.amazon.com/amazondynamodb/latest/APIReference/API_BatchWriteItem.html
			// up to 25 operations per request
			recs := make([]interface{}, 0, 25)
			flush := func() error {
				l := len(recs)
				if l == 0 {
					return nil
				}
				_, err := cli.Table(*optTable).Batch().Write().Put(recs...).RunWithContext(ctx)
				if err != nil {
					return err
				}
				count += l
				recs = recs[:0]
				return nil
			}

		loop:
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case e, ok := <-chPut:
					if !ok {
						break loop
					}
					recs = append(recs, e)
					if len(recs) == cap(recs) {
						if err := flush(); err != nil {
							return err
						}
					}
				}
			}
			return flush()
		})
	}

	var retErr error
	for _, fn := range flag.Args() {
		if err := loadShard(ctx, fn, &seq, chPuts); err != nil {
			retErr = multierror.Append(retErr, err)
			// eg.Goしているgoroutineを回収したいのでreturnしないで継続
			break
		}
	}

	for _, chPut := range chPuts {
		close(chPut)
	}
	log.Printf("waiting for put workers done")
	if err := egPut.Wait(); err != nil {
		retErr = multierror.Append(retErr, fmt.Errorf("egPut.Wait: %w", err))
	}

	if retErr != nil {
		return retErr
	}

	log.Printf("dur=%s", time.Since(from))

	return nil
}

func loadShard(ctx context.Context, fn string, seq *int64, chPuts []chan Record) error {
	log.Printf("loading %s", fn)
	fp, err := os.Open(fn)
	if err != nil {
		return fmt.Errorf("os.Open: %w", err)
	}
	defer fp.Close()

	r, err := shard.NewReader(fn, fp)
	if err != nil {
		return fmt.Errorf("shard.NewReader: %w", err)
	}
	defer r.Close()

	lc, err := shard.ReadRecords(r, func(rec map[string]any) error {
		nextSeq := atomic.AddInt64(seq, 1)
		partition := nextSeq % *optSplitPartition
		pk := *optPartitionKey + ":" + strconv.FormatInt(partition, 10)
		ch := chPuts[0]
		if len(chPuts) > 1 {
			ch = chPuts[partition]
		}

		now := time.Now().Unix()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- Record{
			Code:      pk,
			Seq:       nextSeq,
			ID:        uuid.NewString(),
			Kind:      kindOf(rec),
			Content:   normalize(rec),
			CreatedAt: now,
			UpdatedAt: now,
		}:
		}

		if nextSeq%1000 == 0 {
			log.Printf("%s: Posted %s recs", fn, humanize.Comma(nextSeq))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	log.Printf("%s: Total %s recs", fn, humanize.Comma(lc))
	return nil
}

// kindOf relies on schema.Validate reserving the subscription field name,
// so no publication has the subscription shape.
func kindOf(rec map[string]interface{}) string {
	if len(rec) == 1 && rec[generate.SubscriptionField] == generate.SubscriptionMarker {
		return "subscription"
	}
	return "publication"
}

// normalize turns decoded json.Number values into float64 for the dynamo encoder.
func normalize(rec map[string]interface{}) map[string]interface{} {
	for k, v := range rec {
		if n, ok := v.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				rec[k] = f
			}
		}
	}
	return rec
}
