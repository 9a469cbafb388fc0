package tally

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// The tally lives inside the published caption itself, there is no side
// ledger. The pattern below is the only durable record of the counts.
var pattern = regexp.MustCompile(`👍 (\d+) \| 👎 (\d+)`)

// ErrMalformedTally signals that the expected pattern is absent, duplicated
// or carries non-numeric counts. Callers must refuse the mutation.
var ErrMalformedTally = errors.New("malformed tally")

type Action string

const (
	ActionLike    Action = "like"
	ActionDislike Action = "dislike"
)

type Counts struct {
	Likes    int
	Dislikes int
}

func (c Counts) String() string {
	return fmt.Sprintf("👍 %d | 👎 %d", c.Likes, c.Dislikes)
}

// Seed is the zero tally stamped onto freshly forwarded anonymous videos.
func Seed() string {
	return Counts{}.String()
}

// Parse extracts the counts from a caption holding exactly one tally.
func Parse(caption string) (Counts, error) {
	matches := pattern.FindAllStringSubmatch(caption, 2)
	if len(matches) != 1 {
		return Counts{}, fmt.Errorf("%w: %d pattern occurrences", ErrMalformedTally, len(matches))
	}
	return parseCounts(matches[0][1], matches[0][2])
}

// Apply increments one counter and rewrites the tally substring in place,
// leaving every other byte of the caption untouched.
func Apply(caption string, action Action) (string, Counts, error) {
	locations := pattern.FindAllStringSubmatchIndex(caption, 2)
	if len(locations) != 1 {
		return "", Counts{}, fmt.Errorf("%w: %d pattern occurrences", ErrMalformedTally, len(locations))
	}
	loc := locations[0]

	counts, err := parseCounts(caption[loc[2]:loc[3]], caption[loc[4]:loc[5]])
	if err != nil {
		return "", Counts{}, err
	}
	switch action {
	case ActionLike:
		counts.Likes++
	case ActionDislike:
		counts.Dislikes++
	default:
		return "", Counts{}, fmt.Errorf("unknown tally action %q", action)
	}

	return caption[:loc[0]] + counts.String() + caption[loc[1]:], counts, nil
}

func parseCounts(likes, dislikes string) (Counts, error) {
	likeCount, err := strconv.Atoi(likes)
	if err != nil {
		return Counts{}, fmt.Errorf("%w: like count: %v", ErrMalformedTally, err)
	}
	dislikeCount, err := strconv.Atoi(dislikes)
	if err != nil {
		return Counts{}, fmt.Errorf("%w: dislike count: %v", ErrMalformedTally, err)
	}
	return Counts{Likes: likeCount, Dislikes: dislikeCount}, nil
}
