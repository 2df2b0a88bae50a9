// Package logfilter expands a user-supplied filter criteria into the
// cartesian product of single-value fragments that the sync store indexes
// on (spec §4.3). Expansion is a total, deterministic function — fragments
// are cheap to recompute, so no memoization is attempted.
package logfilter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/joacorob/evmsync/internal/model"
)

// slotValues normalizes a slot (address or topic set) into the list of
// values to range over, with a single "" entry meaning "unconstrained".
func slotValues(values []string) []string {
	if len(values) == 0 {
		return []string{""}
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}

// BuildLogFilterFragments expands criteria into the cartesian product of
// fragments over its non-null slots (address, topic0..topic3). A scalar
// slot value is expressed as a one-element set, so it expands exactly like
// the singleton: testable property 9.
func BuildLogFilterFragments(chainID uint64, criteria model.LogFilterCriteria) []model.LogFilterFragment {
	addresses := slotValues(criteria.Address)
	topic0s := slotValues(criteria.Topics[0])
	topic1s := slotValues(criteria.Topics[1])
	topic2s := slotValues(criteria.Topics[2])
	topic3s := slotValues(criteria.Topics[3])

	var out []model.LogFilterFragment
	for _, addr := range addresses {
		for _, t0 := range topic0s {
			for _, t1 := range topic1s {
				for _, t2 := range topic2s {
					for _, t3 := range topic3s {
						frag := model.LogFilterFragment{
							ChainID: chainID,
							Address: addr,
							Topic0:  t0,
							Topic1:  t1,
							Topic2:  t2,
							Topic3:  t3,
						}
						frag.ID = FragmentID(chainID, addr, t0, t1, t2, t3)
						out = append(out, frag)
					}
				}
			}
		}
	}
	return out
}

// BuildFactoryFragments expands a factory criteria the same way, but every
// fragment additionally carries address/eventSelector/childAddressLocation.
// eventSelector and childAddressLocation are copied as given; address is
// the "" unconstrained marker when criteria.Address is empty.
func BuildFactoryFragments(chainID uint64, criteria model.FactoryCriteria) []model.FactoryFragment {
	addresses := slotValues(criteria.Address)
	topic1s := slotValues(criteria.Topics[1])
	topic2s := slotValues(criteria.Topics[2])
	topic3s := slotValues(criteria.Topics[3])
	selector := strings.ToLower(criteria.EventSelector)

	var out []model.FactoryFragment
	for _, addr := range addresses {
		for _, t1 := range topic1s {
			for _, t2 := range topic2s {
				for _, t3 := range topic3s {
					frag := model.FactoryFragment{
						ChainID:              chainID,
						Address:              addr,
						EventSelector:        selector,
						ChildAddressLocation: criteria.ChildAddressLocation,
						Topic0:               selector,
						Topic1:               t1,
						Topic2:               t2,
						Topic3:               t3,
					}
					frag.ID = FactoryFragmentID(chainID, addr, selector, criteria.ChildAddressLocation, t1, t2, t3)
					out = append(out, frag)
				}
			}
		}
	}
	return out
}

// FragmentID deterministically hashes a log filter fragment's tuple into a
// canonical, stable id. Empty slots are distinguished from bound ones by a
// literal marker so that ("", ...) never collides with a future bound
// value equal to the empty string (addresses/topics are never empty hex).
func FragmentID(chainID uint64, address, topic0, topic1, topic2, topic3 string) string {
	return hashTuple(chainID, address, topic0, topic1, topic2, topic3)
}

// FactoryFragmentID deterministically hashes a factory fragment's tuple.
func FactoryFragmentID(chainID uint64, address, eventSelector, childAddressLocation, topic1, topic2, topic3 string) string {
	return hashTuple(chainID, "factory", address, eventSelector, childAddressLocation, topic1, topic2, topic3)
}

func hashTuple(chainID uint64, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatUint(chainID, 10)))
	for _, p := range parts {
		h.Write([]byte{0}) // separator, cannot appear in hex-encoded parts
		if p == "" {
			h.Write([]byte("\x01null"))
			continue
		}
		h.Write([]byte(p))
	}
	return fmt.Sprintf("0x%s", hex.EncodeToString(h.Sum(nil)))
}
