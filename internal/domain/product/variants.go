package product

import (
	"bytes"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
)

// ParseVariants decodes a JSON array of {"sizes": [...], "colors": [...]}
// objects. Any other shape is rejected. Empty input yields no variants.
func ParseVariants(raw []byte) ([]Variant, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	d := jx.DecodeBytes(raw)
	variants := []Variant{}
	if err := d.Arr(func(d *jx.Decoder) error {
		v, err := decodeVariant(d)
		if err != nil {
			return err
		}
		variants = append(variants, v)
		return nil
	}); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, err, "invalid variants")
	}
	if d.Next() != jx.Invalid {
		return nil, apperr.New(apperr.InvalidInput, "invalid variants: trailing data")
	}
	return variants, nil
}

func decodeVariant(d *jx.Decoder) (Variant, error) {
	var v Variant
	if d.Next() != jx.Object {
		return v, errors.New("variant must be an object")
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "sizes":
			return decodeStrings(d, &v.Sizes)
		case "colors":
			return decodeStrings(d, &v.Colors)
		default:
			return errors.Errorf("unknown variant field %q", key)
		}
	})
	if v.Sizes == nil {
		v.Sizes = []string{}
	}
	if v.Colors == nil {
		v.Colors = []string{}
	}
	return v, err
}

func decodeStrings(d *jx.Decoder, dst *[]string) error {
	if d.Next() != jx.Array {
		return errors.New("expected array of strings")
	}
	out := []string{}
	if err := d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.String {
			return errors.New("expected string")
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	}); err != nil {
		return err
	}
	*dst = out
	return nil
}
