package sharder

import (
	"archive/tar"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"

	"jaytaylor.com/shardpress/domain"
	"jaytaylor.com/shardpress/metadata"
)

// archiveEpoch is the fixed modification time stamped on every archive
// entry.  Together with a fixed compression level and a single-goroutine
// encoder, it makes shard archives byte-for-byte reproducible across runs
// and machines.
var archiveEpoch = time.Unix(0, 0).UTC()

// buildShard creates one archive plus its metadata file.  It is a no-op
// when both already exist, which is what makes re-running the stage
// resumable.  The returned error is non-nil only when a file cannot be
// created under the stage's own output directories; every other failure is
// logged, any partial archive is deleted, and the run continues.
func (s *Sharder) buildShard(task shardTask) error {
	var (
		id          = domain.FormatShardID(task.seq)
		archivePath = filepath.Join(s.cfg.ShardsDir, domain.ShardArchiveName(id))
		metaPath    = filepath.Join(s.cfg.ShardMetaDir, domain.ShardMetadataName(id))
	)

	if pathExists(archivePath) && pathExists(metaPath) {
		log.WithField("shard", id).Info("Shard already exists, skipping")
		return nil
	}

	log.WithFields(log.Fields{
		"shard": id,
		"files": len(task.records),
	}).Info("Creating shard")

	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating shard archive %q: %s", archivePath, err)
	}

	kept, err := s.writeArchive(f, id, task.records)
	if err != nil {
		f.Close()
		os.Remove(archivePath)
		log.WithField("shard", id).Errorf("Abandoning shard after archive failure: %s", err)
		return nil
	}
	if err := f.Close(); err != nil {
		os.Remove(archivePath)
		log.WithField("shard", id).Errorf("Abandoning shard, close failed: %s", err)
		return nil
	}

	w, err := metadata.NewWriter(metaPath)
	if err != nil {
		os.Remove(archivePath)
		return fmt.Errorf("creating shard metadata %q: %s", metaPath, err)
	}
	if err := w.Write(kept); err != nil {
		w.Abort()
		os.Remove(archivePath)
		log.WithField("shard", id).Errorf("Abandoning shard, metadata write failed: %s", err)
		return nil
	}
	if err := w.Close(); err != nil {
		os.Remove(archivePath)
		log.WithField("shard", id).Errorf("Abandoning shard, metadata close failed: %s", err)
		return nil
	}

	size := int64(0)
	if info, err := os.Stat(archivePath); err == nil {
		size = info.Size()
	}
	log.WithFields(log.Fields{
		"shard":   id,
		"files":   len(kept),
		"skipped": len(task.records) - len(kept),
		"archive": humanize.Bytes(uint64(size)),
	}).Info("Shard created")

	return nil
}

// writeArchive streams the rows' file contents into a tar.zst stream in row
// order and returns the subset of rows actually archived, each stamped with
// the shard ID.  Missing or unreadable source files are skipped; any write
// failure on the archive stream itself aborts the whole shard since the
// stream can no longer be trusted.
func (s *Sharder) writeArchive(f *os.File, id string, recs []domain.FileRecord) ([]domain.FileRecord, error) {
	enc, err := zstd.NewWriter(f,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing compressor: %s", err)
	}

	tw := tar.NewWriter(enc)
	kept := make([]domain.FileRecord, 0, len(recs))

	for _, rec := range recs {
		src := filepath.Join(
			s.cfg.ReposDir,
			domain.EscapeProjectName(rec.ProjectName),
			filepath.FromSlash(rec.FilePath),
		)
		content, err := os.ReadFile(src)
		if err != nil {
			log.WithField("file", src).Warnf("Unreadable file, skipping: %s", err)
			continue
		}

		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     rec.ProjectName + "/" + rec.FilePath,
			Mode:     0644,
			Size:     int64(len(content)),
			ModTime:  archiveEpoch,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			tw.Close()
			enc.Close()
			return nil, fmt.Errorf("writing header for %q: %s", hdr.Name, err)
		}
		if _, err := tw.Write(content); err != nil {
			tw.Close()
			enc.Close()
			return nil, fmt.Errorf("writing %q: %s", hdr.Name, err)
		}

		kept = append(kept, rec.WithShardID(id))
	}

	if err := tw.Close(); err != nil {
		enc.Close()
		return nil, fmt.Errorf("closing tar stream: %s", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing compressor: %s", err)
	}
	return kept, nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
