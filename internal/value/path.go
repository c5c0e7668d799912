package value

import (
	"fmt"
	"strconv"
	"strings"
)

// SplitPath splits a dot path into segments. The empty path has no segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get reads the value at path. Objects are indexed by key and arrays by
// decimal index. A missing segment, an out-of-range index or a scalar in
// the middle of the path all read as absent: Get never fails.
//
// The empty path addresses root itself.
func Get(root Value, path string) (Value, bool) {
	cur := root
	for _, seg := range SplitPath(path) {
		switch c := cur.(type) {
		case Object:
			next, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case Array:
			idx, ok := arrayIndex(seg, len(c))
			if !ok {
				return nil, false
			}
			cur = c[idx]
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// Set returns a copy of root in which path holds v. root is not modified.
//
// Missing or null intermediates are created as objects. Existing arrays can
// be written at an in-range index. Writing through any other scalar is a
// *PathError.
func Set(root Object, path string, v Value) (Object, error) {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return nil, ErrEmptyPath
	}
	if err := checkSegments(path, segs); err != nil {
		return nil, err
	}
	if v == nil {
		v = Null{}
	}
	if root == nil {
		root = Object{}
	}

	out, err := setIn(root, path, segs, 0, v)
	if err != nil {
		return nil, err
	}
	return out.(Object), nil
}

func setIn(cur Value, path string, segs []string, i int, v Value) (Value, error) {
	if i == len(segs) {
		return v, nil
	}
	seg := segs[i]

	switch c := cur.(type) {
	case nil, Null:
		child, err := setIn(nil, path, segs, i+1, v)
		if err != nil {
			return nil, err
		}
		return Object{seg: child}, nil

	case Object:
		child, err := setIn(c[seg], path, segs, i+1, v)
		if err != nil {
			return nil, err
		}
		out := c.Clone()
		out[seg] = child
		return out, nil

	case Array:
		idx, ok := arrayIndex(seg, len(c))
		if !ok {
			return nil, &PathError{
				Path:    path,
				Segment: i,
				Reason:  fmt.Sprintf("index %q out of range for array of length %d", seg, len(c)),
			}
		}
		child, err := setIn(c[idx], path, segs, i+1, v)
		if err != nil {
			return nil, err
		}
		out := make(Array, len(c))
		copy(out, c)
		out[idx] = child
		return out, nil

	default:
		return nil, &PathError{
			Path:    path,
			Segment: i,
			Reason:  fmt.Sprintf("cannot descend into %s", KindOf(cur)),
		}
	}
}

// Delete returns a copy of root without the key at path. The final
// container must be an object. Deleting a missing key reports false and
// returns root unchanged.
func Delete(root Object, path string) (Object, bool, error) {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return nil, false, ErrEmptyPath
	}
	if err := checkSegments(path, segs); err != nil {
		return nil, false, err
	}

	parentPath := strings.Join(segs[:len(segs)-1], ".")
	parent, ok := Get(root, parentPath)
	if !ok {
		return root, false, nil
	}
	obj, ok := parent.(Object)
	if !ok {
		return nil, false, &PathError{
			Path:    path,
			Segment: len(segs) - 1,
			Reason:  fmt.Sprintf("cannot delete from %s", KindOf(parent)),
		}
	}
	key := segs[len(segs)-1]
	if _, ok := obj[key]; !ok {
		return root, false, nil
	}

	trimmed := obj.Clone()
	delete(trimmed, key)
	if parentPath == "" {
		return trimmed, true, nil
	}
	out, err := Set(root, parentPath, trimmed)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func checkSegments(path string, segs []string) error {
	for i, seg := range segs {
		if seg == "" {
			return &PathError{Path: path, Segment: i, Reason: "empty segment"}
		}
	}
	return nil
}

func arrayIndex(seg string, n int) (int, bool) {
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}
