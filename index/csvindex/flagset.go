package csvindex

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/tablo/index"
)

// flagSets holds the row ordinals per flag as roaring bitmaps. Bitmaps
// keep the per-row bookkeeping compact for large datasets and serialize
// directly into the artifact.
type flagSets struct {
	include *roaring.Bitmap
	exclude *roaring.Bitmap
	skip    *roaring.Bitmap
}

func newFlagSets() *flagSets {
	return &flagSets{
		include: roaring.NewBitmap(),
		exclude: roaring.NewBitmap(),
		skip:    roaring.NewBitmap(),
	}
}

func (s *flagSets) add(flag index.RowFlag, ordinal uint32) {
	s.bitmap(flag).Add(ordinal)
}

func (s *flagSets) bitmap(flag index.RowFlag) *roaring.Bitmap {
	switch flag {
	case index.FlagInclude:
		return s.include
	case index.FlagExclude:
		return s.exclude
	default:
		return s.skip
	}
}

func (s *flagSets) counts() (include, exclude, skip int) {
	return int(s.include.GetCardinality()),
		int(s.exclude.GetCardinality()),
		int(s.skip.GetCardinality())
}

func (s *flagSets) marshal() (include, exclude, skip []byte, err error) {
	if include, err = s.include.MarshalBinary(); err != nil {
		return nil, nil, nil, err
	}
	if exclude, err = s.exclude.MarshalBinary(); err != nil {
		return nil, nil, nil, err
	}
	if skip, err = s.skip.MarshalBinary(); err != nil {
		return nil, nil, nil, err
	}
	return include, exclude, skip, nil
}

func unmarshalFlagSets(include, exclude, skip []byte) (*flagSets, error) {
	s := newFlagSets()
	if err := s.include.UnmarshalBinary(include); err != nil {
		return nil, err
	}
	if err := s.exclude.UnmarshalBinary(exclude); err != nil {
		return nil, err
	}
	if err := s.skip.UnmarshalBinary(skip); err != nil {
		return nil, err
	}
	return s, nil
}
