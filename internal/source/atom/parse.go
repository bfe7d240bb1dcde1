package atom

import (
	"bytes"
	"errors"
	"time"

	"github.com/mmcdole/gofeed"
	gatom "github.com/mmcdole/gofeed/atom"

	"announcement_relay/internal/domain"
)

var errUnknownFormat = errors.New("document is not an atom, rss or json feed")

// parse converts a feed document into a domain.Feed. Atom feeds are parsed
// with the atom parser directly because the feed <id> is the canonical id;
// other formats fall back to the universal parser and the feed link.
func parse(body []byte, sourceURL string) (*domain.Feed, int, error) {
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeAtom:
		feed, err := (&gatom.Parser{}).Parse(bytes.NewReader(body))
		if err != nil {
			return nil, 0, err
		}
		out, skipped := fromAtom(feed, sourceURL)
		return out, skipped, nil
	case gofeed.FeedTypeRSS, gofeed.FeedTypeJSON:
		feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
		if err != nil {
			return nil, 0, err
		}
		out, skipped := fromUniversal(feed, sourceURL)
		return out, skipped, nil
	default:
		return nil, 0, errUnknownFormat
	}
}

func fromAtom(feed *gatom.Feed, sourceURL string) (*domain.Feed, int) {
	out := &domain.Feed{
		CanonicalID: firstNonEmpty(feed.ID, atomLink(feed.Links, "self"), sourceURL),
		Title:       feed.Title,
		Updated:     timeOrZero(feed.UpdatedParsed),
	}

	skipped := 0
	for _, entry := range feed.Entries {
		published := firstTime(entry.PublishedParsed, entry.UpdatedParsed)
		if published == nil {
			skipped++
			continue
		}

		a := domain.Announcement{
			Title:     entry.Title,
			EntryID:   entry.ID,
			Published: published.UTC(),
			Updated:   firstTime(entry.UpdatedParsed, entry.PublishedParsed).UTC(),
			Link:      atomLink(entry.Links, "alternate"),
			Content:   entry.Summary,
		}
		if entry.Content != nil && entry.Content.Value != "" {
			a.Content = entry.Content.Value
		}
		if len(entry.Authors) > 0 && entry.Authors[0] != nil {
			a.Author = entry.Authors[0].Name
		}

		out.Announcements = append(out.Announcements, a)
	}

	return out, skipped
}

func fromUniversal(feed *gofeed.Feed, sourceURL string) (*domain.Feed, int) {
	out := &domain.Feed{
		CanonicalID: firstNonEmpty(feed.FeedLink, feed.Link, sourceURL),
		Title:       feed.Title,
		Updated:     timeOrZero(feed.UpdatedParsed),
	}

	skipped := 0
	for _, item := range feed.Items {
		published := firstTime(item.PublishedParsed, item.UpdatedParsed)
		if published == nil {
			skipped++
			continue
		}

		a := domain.Announcement{
			Title:     item.Title,
			EntryID:   firstNonEmpty(item.GUID, item.Link),
			Published: published.UTC(),
			Updated:   firstTime(item.UpdatedParsed, item.PublishedParsed).UTC(),
			Link:      item.Link,
			Content:   firstNonEmpty(item.Content, item.Description),
		}
		if item.Author != nil {
			a.Author = item.Author.Name
		}

		out.Announcements = append(out.Announcements, a)
	}

	return out, skipped
}

// atomLink returns the href of the first link with rel, treating a missing
// rel as "alternate". Falls back to the first link.
func atomLink(links []*gatom.Link, rel string) string {
	for _, l := range links {
		if l == nil {
			continue
		}
		r := l.Rel
		if r == "" {
			r = "alternate"
		}
		if r == rel {
			return l.Href
		}
	}
	if rel == "alternate" && len(links) > 0 && links[0] != nil {
		return links[0].Href
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstTime(values ...*time.Time) *time.Time {
	for _, v := range values {
		if v != nil && !v.IsZero() {
			return v
		}
	}
	return nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
