// SPDX-License-Identifier: MPL-2.0

package instagram

import (
	"encoding/json"
	"time"
)

// Media type codes used by the Instagram feed API.
const (
	MediaTypePhoto    = 1
	MediaTypeVideo    = 2
	MediaTypeCarousel = 8
)

type (
	// Media represents a single post on an Instagram profile.
	Media struct {
		PK            string         // Numeric media identifier, unique per post
		Code          string         // URL shortcode, e.g. "CxYz12AbCd3"
		MediaType     int            // MediaTypePhoto, MediaTypeVideo or MediaTypeCarousel
		TakenAt       time.Time      // Upload timestamp
		Caption       string         // Caption text, empty when the post has none
		VideoVersions []VideoVersion // Available renditions, highest quality first
	}

	// VideoVersion is one downloadable rendition of a video post.
	VideoVersion struct {
		URL    string
		Width  int
		Height int
	}

	// feedResponse is the JSON wire format of the user feed endpoint.
	feedResponse struct {
		Items  []feedItem `json:"items"`
		Status string     `json:"status"`
	}

	// feedItem is the JSON wire format of a single feed entry.
	feedItem struct {
		PK            json.Number    `json:"pk"`
		Code          string         `json:"code"`
		MediaType     int            `json:"media_type"`
		TakenAt       int64          `json:"taken_at"`
		Caption       *feedCaption   `json:"caption"`
		VideoVersions []videoVersion `json:"video_versions"`
	}

	// feedCaption is the JSON wire format of a caption. Posts without a
	// caption serialize it as null.
	feedCaption struct {
		Text string `json:"text"`
	}

	// videoVersion is the JSON wire format of a video rendition.
	videoVersion struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	}

	// profileResponse is the JSON wire format of the web profile endpoint.
	profileResponse struct {
		Data struct {
			User struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"data"`
		Status string `json:"status"`
	}

	// loginResponse is the JSON wire format of the login endpoint.
	loginResponse struct {
		Authenticated bool   `json:"authenticated"`
		UserID        string `json:"userId"`
		Status        string `json:"status"`
	}
)

// IsVideo reports whether the media is a plain video post.
func (m Media) IsVideo() bool {
	return m.MediaType == MediaTypeVideo
}

// BestVideo returns the rendition with the largest frame, or nil when the
// media has no video versions.
func (m Media) BestVideo() *VideoVersion {
	var best *VideoVersion
	for i := range m.VideoVersions {
		v := &m.VideoVersions[i]
		if best == nil || v.Width*v.Height > best.Width*best.Height {
			best = v
		}
	}
	return best
}

// toMedia converts the wire format to the exported Media type.
func toMedia(fi feedItem) Media {
	versions := make([]VideoVersion, 0, len(fi.VideoVersions))
	for _, v := range fi.VideoVersions {
		versions = append(versions, VideoVersion(v))
	}

	caption := ""
	if fi.Caption != nil {
		caption = fi.Caption.Text
	}

	return Media{
		PK:            fi.PK.String(),
		Code:          fi.Code,
		MediaType:     fi.MediaType,
		TakenAt:       time.Unix(fi.TakenAt, 0).UTC(),
		Caption:       caption,
		VideoVersions: versions,
	}
}
