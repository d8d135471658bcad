package grammar

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cnf/structhash"
)

// lrItem is an LR(1) item: a rule with a dot position, one lookahead
// terminal, and the precedence stack inherited through closure.
type lrItem struct {
	rule  *Rule
	dot   int
	ahead *Term
	prec  []Precedence
}

func newLRItem(rule *Rule, dot int, ahead *Term, prec []Precedence) *lrItem {
	return &lrItem{
		rule:  rule,
		dot:   dot,
		ahead: ahead,
		prec:  prec,
	}
}

// next is the term after the dot, nil when the item is reducible.
func (i *lrItem) next() *Term {
	if i.dot >= len(i.rule.parts) {
		return nil
	}
	return i.rule.parts[i.dot]
}

func (i *lrItem) reducible() bool {
	return i.dot == len(i.rule.parts)
}

func (i *lrItem) advance() *lrItem {
	return newLRItem(i.rule, i.dot+1, i.ahead, i.prec)
}

// shiftPrec is the precedence carried by a shift out of this item's dot
// position: the position's own entries shadow inherited ones.
func (i *lrItem) shiftPrec() []Precedence {
	return mergePrecs(i.rule.conflictAt(i.dot).Precs, i.prec)
}

// reducePrec is the precedence of reducing this item's rule: the rule's
// aggregate entries shadow inherited ones.
func (i *lrItem) reducePrec() []Precedence {
	return mergePrecs(i.rule.aggregatePrec(), i.prec)
}

func (i *lrItem) shiftAmbigs() []string {
	return i.rule.conflictAt(i.dot).Ambigs
}

// cmp orders items lexicographically by rule, dot, lookahead, and
// precedence stack.
func (i *lrItem) cmp(o *lrItem) int {
	if i.rule.id != o.rule.id {
		return i.rule.id - o.rule.id
	}
	if i.dot != o.dot {
		return i.dot - o.dot
	}
	if i.ahead.ID != o.ahead.ID {
		return int(i.ahead.ID - o.ahead.ID)
	}
	if len(i.prec) != len(o.prec) {
		return len(i.prec) - len(o.prec)
	}
	for n, p := range i.prec {
		q := o.prec[n]
		if p.Group != q.Group {
			return strings.Compare(p.Group, q.Group)
		}
		if p.Level != q.Level {
			return p.Level - q.Level
		}
		if p.Assoc != q.Assoc {
			return strings.Compare(string(p.Assoc), string(q.Assoc))
		}
	}
	return 0
}

func (i *lrItem) eq(o *lrItem) bool {
	return i.cmp(o) == 0
}

// coreCmp ignores lookahead and precedence stack.
func (i *lrItem) coreCmp(o *lrItem) int {
	if i.rule.id != o.rule.id {
		return i.rule.id - o.rule.id
	}
	return i.dot - o.dot
}

func (i *lrItem) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v →", i.rule.lhs)
	for n, p := range i.rule.parts {
		if n == i.dot {
			fmt.Fprint(&b, " ·")
		}
		fmt.Fprintf(&b, " %v", p)
	}
	if i.dot == len(i.rule.parts) {
		fmt.Fprint(&b, " ·")
	}
	fmt.Fprintf(&b, " [%v]", i.ahead)
	return b.String()
}

func sortItems(items []*lrItem) {
	sort.Slice(items, func(a, b int) bool {
		return items[a].cmp(items[b]) < 0
	})
}

type itemKey struct {
	Rule  int
	Dot   int
	Ahead int
	Prec  []Precedence
}

// itemsSignature is a canonical content key for a sorted item set.
func itemsSignature(items []*lrItem) string {
	keys := make([]itemKey, len(items))
	for n, i := range items {
		keys[n] = itemKey{
			Rule:  i.rule.id,
			Dot:   i.dot,
			Ahead: int(i.ahead.ID),
			Prec:  i.prec,
		}
	}
	return string(structhash.Sha1(keys, 1))
}

// coreSignature keys an item set by (rule, dot) pairs only.
func coreSignature(items []*lrItem) string {
	type coreKey struct {
		Rule int
		Dot  int
	}
	var keys []coreKey
	seen := map[coreKey]bool{}
	for _, i := range items {
		k := coreKey{Rule: i.rule.id, Dot: i.dot}
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].Rule != keys[b].Rule {
			return keys[a].Rule < keys[b].Rule
		}
		return keys[a].Dot < keys[b].Dot
	})
	return string(structhash.Sha1(keys, 1))
}
