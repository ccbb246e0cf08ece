package iuv

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/civicpay/unifee/internal/domain"
)

// IUV layout: <auxDigit:1><segregationCode:2><base:13><checkDigit:2>.
// The aux digit encodes the generation scheme variant; this pipeline only
// emits variant 3.
const (
	AuxDigit = 3
	Length   = 18

	// One initial attempt plus seven regenerations on collision.
	maxAttempts = 8
)

var base13 = regexp.MustCompile(`^\d{13}$`)

// ErrExhausted is returned when no unique IUV could be reserved within the
// attempt bound. It is fatal for the row being ingested.
var ErrExhausted = errors.New("iuv generation attempts exhausted")

// UniquenessStore arbitrates IUV uniqueness per organization. Reserve must
// be an atomic insert-if-absent returning domain.ErrIuvConflict on a
// pre-existing pair.
type UniquenessStore interface {
	Reserve(orgFiscalCode, iuv string) error
}

// Generator produces check-digit-protected payment identifiers and
// reserves them against the uniqueness store.
type Generator struct {
	store           UniquenessStore
	segregationCode int
	sequential      bool
	sequenceOffset  int64
	iupdPrefix      string
	log             logrus.FieldLogger

	now func() time.Time
}

func NewGenerator(store UniquenessStore, segregationCode int, mode string, sequenceOffset int64, iupdPrefix string, log logrus.FieldLogger) *Generator {
	return &Generator{
		store:           store,
		segregationCode: segregationCode,
		sequential:      mode == "sequential",
		sequenceOffset:  sequenceOffset,
		iupdPrefix:      iupdPrefix,
		log:             log.WithField("component", "iuv"),
		now:             time.Now,
	}
}

// NewUnique generates candidates until one is reserved for the given
// organization, bounded by the attempt limit. The store, not the
// generator's randomness, is the arbiter of uniqueness.
func (g *Generator) NewUnique(orgFiscalCode string) (string, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		candidate, err := g.Generate()
		if err != nil {
			return "", err
		}

		err = g.store.Reserve(orgFiscalCode, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, domain.ErrIuvConflict) {
			return "", fmt.Errorf("reserve iuv: %w", err)
		}
		g.log.Warnf("IUV %s already taken for %s, regenerating (attempt %d/%d)",
			candidate, orgFiscalCode, attempt, maxAttempts)
	}
	return "", fmt.Errorf("organization %s: %w", orgFiscalCode, ErrExhausted)
}

// Generate produces one candidate IUV without touching the store.
func (g *Generator) Generate() (string, error) {
	var base string
	var err error
	if g.sequential {
		base, err = g.sequentialBase()
	} else {
		base, err = g.randomBase()
	}
	if err != nil {
		return "", err
	}

	seg := fmt.Sprintf("%02d", g.segregationCode)
	check, err := CheckDigit(AuxDigit, seg, base)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(AuxDigit) + seg + base + check, nil
}

// Iupd derives the internal position identifier from an IUV by prefixing
// the configured tag.
func (g *Generator) Iupd(iuv string) string {
	return g.iupdPrefix + iuv
}

// CheckDigit computes the two trailing digits of an IUV: the decimal value
// of auxDigit‖segregationCode‖base modulo 93, zero-padded.
func CheckDigit(auxDigit int, segregationCode, base string) (string, error) {
	// 16 decimal digits fit comfortably in int64.
	n, err := strconv.ParseInt(strconv.Itoa(auxDigit)+segregationCode+base, 10, 64)
	if err != nil {
		return "", fmt.Errorf("check digit component: %w", err)
	}
	return fmt.Sprintf("%02d", n%93), nil
}

// randomBase builds the 13-digit base from the epoch-millis remainder and
// a 4-digit random suffix.
func (g *Generator) randomBase() (string, error) {
	millis := g.now().UnixMilli()
	base := fmt.Sprintf("%09d", millis%999999999) + fmt.Sprintf("%04d", rand.Intn(10000))
	if !base13.MatchString(base) {
		return "", fmt.Errorf("unexpected generated value %q", base)
	}
	return base, nil
}

// sequentialBase uses epoch millis plus the configured offset, which must
// already be exactly 13 digits.
func (g *Generator) sequentialBase() (string, error) {
	base := strconv.FormatInt(g.now().UnixMilli()+g.sequenceOffset, 10)
	if !base13.MatchString(base) {
		return "", fmt.Errorf("unexpected generated value %q", base)
	}
	return base, nil
}
