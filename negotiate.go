package apigate

import (
	"mime"
	"strconv"
	"strings"
)

// Default content types a handler can answer with, in preference order.
var DefaultSupportedTypes = []string{
	"text/html",
	"text/plain",
	"text/csv",
	"application/json",
}

const ContentTypeJSON = "application/json"

type mediaRange struct {
	kind    string
	subtype string
	params  map[string]string
	q       float64
}

// Negotiate selects the best representation for the client's Accept header
// out of the handler's supported types. Quality weights and wildcards are
// honored. An absent header, a header matching nothing, and exact ties all
// resolve to the first supported type.
//
// Negotiate is a pure function; applying the chosen type to the response
// happens exactly once elsewhere in the request lifecycle.
func Negotiate(accept string, supported []string) string {
	if len(supported) == 0 {
		return ""
	}
	ranges := parseAccept(accept)
	if len(ranges) == 0 {
		return supported[0]
	}

	best := ""
	bestQ := 0.0
	bestFitness := -1
	for _, candidate := range supported {
		q, fitness := matchQuality(candidate, ranges)
		if q > bestQ || (q == bestQ && fitness > bestFitness) {
			best = candidate
			bestQ = q
			bestFitness = fitness
		}
	}
	if best == "" || bestQ == 0 {
		return supported[0]
	}
	return best
}

func parseAccept(accept string) []mediaRange {
	var ranges []mediaRange
	for _, part := range strings.Split(accept, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mediatype, params, err := mime.ParseMediaType(part)
		if err != nil {
			continue
		}
		kind, subtype, ok := strings.Cut(mediatype, "/")
		if !ok {
			// A bare "*" is a legal shorthand for "*/*".
			if mediatype != "*" {
				continue
			}
			kind, subtype = "*", "*"
		}
		q := 1.0
		if qs, ok := params["q"]; ok {
			if parsed, err := strconv.ParseFloat(qs, 64); err == nil && parsed >= 0 && parsed <= 1 {
				q = parsed
			}
			delete(params, "q")
		}
		ranges = append(ranges, mediaRange{kind: kind, subtype: subtype, params: params, q: q})
	}
	return ranges
}

// matchQuality returns the quality and specificity of the best matching
// range for the candidate type, or (0, -1) when nothing matches.
func matchQuality(candidate string, ranges []mediaRange) (float64, int) {
	mediatype, params, err := mime.ParseMediaType(candidate)
	if err != nil {
		return 0, -1
	}
	kind, subtype, _ := strings.Cut(mediatype, "/")

	bestQ := 0.0
	bestFitness := -1
	for _, r := range ranges {
		if r.kind != kind && r.kind != "*" {
			continue
		}
		if r.subtype != subtype && r.subtype != "*" {
			continue
		}
		fitness := 0
		if r.kind == kind {
			fitness += 100
		}
		if r.subtype == subtype {
			fitness += 10
		}
		for k, v := range r.params {
			if params[k] == v {
				fitness++
			}
		}
		if fitness > bestFitness {
			bestFitness = fitness
			bestQ = r.q
		}
	}
	return bestQ, bestFitness
}
