package sharder

import (
	"jaytaylor.com/shardpress/domain"
)

// shardTask is one unit of shard-creation work: a sequence number plus the
// rows whose file contents belong in the archive.
type shardTask struct {
	seq     int
	records []domain.FileRecord
}

// packer is the shard accumulation state machine.  It consumes GlobalIndex
// rows strictly in order and hands off a shardTask whenever the accumulated
// byte total closes out a shard:
//
//   - adding the next row would push the total past the maximum while the
//     total already meets the minimum: close out first, the pending row
//     opens the next shard;
//   - the total reaches the target: close out immediately, including the
//     row just added.
//
// A single row larger than the maximum is never split or dropped; it rides
// in whatever shard is currently accumulating.
type packer struct {
	target  int64
	min     int64
	max     int64
	flush   func(task shardTask) error
	pending []domain.FileRecord
	total   int64
	seq     int
}

func newPacker(target int64, min int64, max int64, flush func(task shardTask) error) *packer {
	p := &packer{
		target: target,
		min:    min,
		max:    max,
		flush:  flush,
	}
	return p
}

func (p *packer) add(rec domain.FileRecord) error {
	if p.total+rec.Size > p.max && p.total >= p.min {
		if err := p.closeOut(); err != nil {
			return err
		}
	}

	p.pending = append(p.pending, rec)
	p.total += rec.Size

	if p.total >= p.target {
		return p.closeOut()
	}
	return nil
}

// finish flushes the trailing partial shard, regardless of size.
func (p *packer) finish() error {
	if len(p.pending) == 0 {
		return nil
	}
	return p.closeOut()
}

// shards returns how many shards have been closed out so far.
func (p *packer) shards() int {
	return p.seq
}

func (p *packer) closeOut() error {
	task := shardTask{
		seq:     p.seq,
		records: p.pending,
	}
	p.seq++
	p.pending = nil // Handed off; the task owns the slice now.
	p.total = 0
	return p.flush(task)
}
