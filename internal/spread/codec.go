package spread

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/annel0/climate-coil/internal/vec"
)

// Формат снимка:
//
//	magic "CSPR" | version | source (3 varint) | max (uvarint)
//	для каждой силы 0..max: count (uvarint), затем count позиций
//	edges: count (uvarint), затем count пар позиция + сила (uvarint)
const (
	snapshotMagic   = "CSPR"
	snapshotVersion = 1
)

// EncodeSnapshot сериализует снимок. Позиции внутри корзины отсортированы,
// так что одинаковые снимки дают одинаковые байты.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	if snap.MaxDistance <= 0 {
		return nil, fmt.Errorf("%w: max distance %d", ErrConfiguration, snap.MaxDistance)
	}

	buckets := make([][]vec.Vec3, snap.MaxDistance+1)
	for p, s := range snap.Spread {
		if s < 0 || s > snap.MaxDistance {
			return nil, fmt.Errorf("%w: strength %d at %s", ErrConfiguration, s, p)
		}
		buckets[s] = append(buckets[s], p)
	}

	buf := make([]byte, 0, 16+len(snap.Spread)*6+len(snap.Edges)*7)
	buf = append(buf, snapshotMagic...)
	buf = append(buf, snapshotVersion)
	buf = appendPos(buf, snap.Source)
	buf = binary.AppendUvarint(buf, uint64(snap.MaxDistance))

	for _, bucket := range buckets {
		sortPositions(bucket)
		buf = binary.AppendUvarint(buf, uint64(len(bucket)))
		for _, p := range bucket {
			buf = appendPos(buf, p)
		}
	}

	edges := make([]vec.Vec3, 0, len(snap.Edges))
	for p := range snap.Edges {
		edges = append(edges, p)
	}
	sortPositions(edges)
	buf = binary.AppendUvarint(buf, uint64(len(edges)))
	for _, p := range edges {
		node, err := NewNode(p, snap.Edges[p], snap.MaxDistance)
		if err != nil {
			return nil, fmt.Errorf("edge: %w", err)
		}
		buf = appendPos(buf, node.Pos)
		buf = binary.AppendUvarint(buf, uint64(node.Strength))
	}
	return buf, nil
}

// DecodeSnapshot разбирает байты, полученные EncodeSnapshot
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if len(data) < len(snapshotMagic)+1 || !bytes.Equal(data[:len(snapshotMagic)], []byte(snapshotMagic)) {
		return snap, fmt.Errorf("%w: bad magic", ErrCorruptSnapshot)
	}
	if v := data[len(snapshotMagic)]; v != snapshotVersion {
		return snap, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, v)
	}
	r := bytes.NewReader(data[len(snapshotMagic)+1:])

	var err error
	if snap.Source, err = readPos(r); err != nil {
		return snap, err
	}
	max, err := readUvarint(r, "max distance")
	if err != nil {
		return snap, err
	}
	if max == 0 || max > 1<<16 {
		return snap, fmt.Errorf("%w: max distance %d", ErrCorruptSnapshot, max)
	}
	snap.MaxDistance = int(max)

	snap.Spread = make(map[vec.Vec3]int)
	for s := 0; s <= snap.MaxDistance; s++ {
		count, err := readCount(r, "bucket")
		if err != nil {
			return snap, err
		}
		for i := 0; i < count; i++ {
			p, err := readPos(r)
			if err != nil {
				return snap, err
			}
			snap.Spread[p] = s
		}
	}

	count, err := readCount(r, "edges")
	if err != nil {
		return snap, err
	}
	snap.Edges = make(map[vec.Vec3]int, count)
	for i := 0; i < count; i++ {
		p, err := readPos(r)
		if err != nil {
			return snap, err
		}
		s, err := readUvarint(r, "edge strength")
		if err != nil {
			return snap, err
		}
		node, err := NewNode(p, int(s), snap.MaxDistance)
		if err != nil {
			return snap, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		snap.Edges[node.Pos] = node.Strength
	}

	if r.Len() != 0 {
		return snap, fmt.Errorf("%w: %d trailing bytes", ErrCorruptSnapshot, r.Len())
	}
	return snap, nil
}

func appendPos(buf []byte, p vec.Vec3) []byte {
	buf = binary.AppendVarint(buf, int64(p.X))
	buf = binary.AppendVarint(buf, int64(p.Y))
	return binary.AppendVarint(buf, int64(p.Z))
}

func readPos(r *bytes.Reader) (vec.Vec3, error) {
	var c [3]int64
	for i := range c {
		v, err := binary.ReadVarint(r)
		if err != nil {
			return vec.Vec3{}, fmt.Errorf("%w: position: %v", ErrCorruptSnapshot, err)
		}
		c[i] = v
	}
	return vec.Vec3{X: int(c[0]), Y: int(c[1]), Z: int(c[2])}, nil
}

func readUvarint(r *bytes.Reader, what string) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrCorruptSnapshot, what, err)
	}
	return v, nil
}

// readCount читает счётчик и отсекает значения больше остатка буфера
func readCount(r *bytes.Reader, what string) (int, error) {
	v, err := readUvarint(r, what)
	if err != nil {
		return 0, err
	}
	if v > uint64(r.Len()) {
		return 0, fmt.Errorf("%w: %s count %d exceeds payload", ErrCorruptSnapshot, what, v)
	}
	return int(v), nil
}

func sortPositions(ps []vec.Vec3) {
	sort.Slice(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
}
