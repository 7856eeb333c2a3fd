package lode

import (
	"context"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// NewReadDataset opens the framecap dataset: Hive partitions over
// partitionKeys, JSONL rows. Writers and readers share this shape.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// NewReadDatasetFS opens the dataset under a local root directory.
func NewReadDatasetFS(dataset, rootPath string) (lode.Dataset, error) {
	return NewReadDataset(dataset, lode.NewFSFactory(rootPath))
}

// NewReadDatasetS3 opens the dataset in a bucket.
func NewReadDatasetS3(ctx context.Context, dataset string, s3cfg S3Config) (lode.Dataset, error) {
	factory, err := NewS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewReadDataset(dataset, factory)
}

// partitionFilter selects snapshots by partition values. Empty values
// match anything.
type partitionFilter map[string]string

// matches reports whether some file in snap lies under every requested
// partition.
func (f partitionFilter) matches(snap *lode.Snapshot) bool {
	for _, file := range snap.Manifest.Files {
		if f.matchesPath(file.Path) {
			return true
		}
	}
	return false
}

func (f partitionFilter) matchesPath(p string) bool {
	for key, value := range f {
		if value != "" && !pathHasPartition(p, key, value) {
			return false
		}
	}
	return true
}

// pathHasPartition looks for an exact key=value path segment, so
// session_id=s-1 never matches session_id=s-10.
func pathHasPartition(p, key, value string) bool {
	want := key + "=" + value
	for seg := range strings.SplitSeq(p, "/") {
		if seg == want {
			return true
		}
	}
	return false
}
