package trace

import (
	"regexp"
	"strconv"
	"strings"

	"net-scout/internal/model"
)

var (
	hopLineRe = regexp.MustCompile(`^(\d+)\s+(.*)$`)
	parenIPRe = regexp.MustCompile(`\((\d{1,3}(?:\.\d{1,3}){3})\)`)
	bareIPRe  = regexp.MustCompile(`(\d{1,3}(?:\.\d{1,3}){3})`)
	timeRe    = regexp.MustCompile(`(\d+\.\d+)\s*ms`)
)

// Parse converts raw traceroute output into ordered hop records. Lines
// that do not start with a hop number (banners, continuation lines) are
// skipped; malformed input never produces an error. Hop numbers are kept
// as reported even if the tool skips or repeats them.
func Parse(raw string) []model.Hop {
	var hops []model.Hop
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := hopLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		hopNum, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		rest := strings.TrimSpace(m[2])

		hop := model.Hop{Hop: hopNum, Times: []float64{}, RawLine: line}

		// A remainder starting with '*' is a no-response hop.
		if strings.HasPrefix(rest, "*") {
			hops = append(hops, hop)
			continue
		}

		if pm := parenIPRe.FindStringSubmatchIndex(rest); pm != nil {
			// "name (192.168.50.1)  0.710 ms" — parenthesized IP, the
			// text before the parentheses is the display name.
			hop.IP = rest[pm[2]:pm[3]]
			if before := strings.TrimSpace(rest[:pm[0]]); before != "" {
				hop.RDNS = before
			}
		} else if im := bareIPRe.FindStringSubmatchIndex(rest); im != nil {
			hop.IP = rest[im[2]:im[3]]
			if before := strings.TrimSpace(rest[:im[0]]); before != "" && !strings.HasPrefix(before, "*") {
				hop.RDNS = strings.Fields(before)[0]
			}
		}

		for _, tm := range timeRe.FindAllStringSubmatch(rest, -1) {
			if v, err := strconv.ParseFloat(tm[1], 64); err == nil {
				hop.Times = append(hop.Times, v)
			}
		}
		hops = append(hops, hop)
	}
	return hops
}
