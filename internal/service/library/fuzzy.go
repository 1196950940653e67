package service

import (
	"slices"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/montagehq/montage/internal/models"
)

/*
 * Parts of the transform chain were taken from
 * github.com/lithammer/fuzzysearch/fuzzy. It is not public for
 * external use, so it is copied and customised here.
 */

var (
	normalizeTransformer transform.Transformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	transformer                                = transform.Chain(normalizeTransformer, unicodeFoldTransformer{})
)

type mediaRank struct {
	media models.MediaItem
	rank  int
}

func rankCmp(mr1, mr2 mediaRank) int {
	return mr1.rank - mr2.rank
}

// filterRank returns the assets matching the category filter,
// ranked by the Levenshtein distance between the query and the
// asset's prompt (falling back to its url for uploads without
// prompts). The returned slice is sorted by rank ascending.
func filterRank(lib []models.MediaItem, filter models.MediaFilter) []mediaRank {
	out := make([]mediaRank, 0, len(lib))

	for _, media := range lib {
		if !typeMatches(media, filter.Types) {
			continue
		}

		subject := media.Prompt
		if subject == "" {
			subject = media.URL
		}

		out = append(out, mediaRank{
			media: media,
			rank:  fuzzy.LevenshteinDistance(stringTransform(subject), stringTransform(filter.Query)),
		})
	}

	slices.SortStableFunc(out, rankCmp)

	return out
}

func typeMatches(media models.MediaItem, types []models.MediaType) bool {
	if len(types) == 0 {
		return true
	}
	return slices.Contains(types, media.MediaType)
}

func stringTransform(s string) (transformed string) {
	var err error
	transformed, _, err = transform.String(transformer, s)
	if err != nil {
		transformed = s
	}

	return
}

type unicodeFoldTransformer struct{ transform.NopResetter }

func (unicodeFoldTransformer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	// Converting src to a string allocates.
	// In theory, it need not; see https://go.dev/issue/27148.
	// It is possible to write this loop using utf8.DecodeRune
	// and thereby avoid allocations, but it is noticeably slower.
	// So just let's wait for the compiler to get smarter.
	for _, r := range string(src) {
		if r == utf8.RuneError {
			// Go spec for ranging over a string says:
			// If the iteration encounters an invalid UTF-8 sequence,
			// the second value will be 0xFFFD, the Unicode replacement character,
			// and the next iteration will advance a single byte in the string.
			nSrc++
		} else {
			nSrc += utf8.RuneLen(r)
		}
		r = unicode.ToLower(r)
		x := utf8.RuneLen(r)
		if x > len(dst[nDst:]) {
			err = transform.ErrShortDst
			break
		}
		nDst += utf8.EncodeRune(dst[nDst:], r)
	}
	return nDst, nSrc, err
}
