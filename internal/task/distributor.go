package task

import (
	"net/url"
	"sort"
	"strings"
)

// emptyHostKey sorts first among real hostnames and, unlike "⊥", is a
// plain byte-comparable string. URLs that fail to parse or carry no
// host land here.
const emptyHostKey = "\x00"

// Distribute maps a batch of URLs onto workerCount worker inboxes,
// clustering same-host URLs by sorting on host first, then dealing
// round-robin: the k-th URL in the sorted order goes to worker
// k mod workerCount. Because adjacent sorted entries usually differ
// by one worker index, URLs sharing a host spread across different
// workers instead of piling up behind one.
//
// Distribute is pure: same input, same output, no side effects.
func Distribute(urls []string, workerCount int) [][]string {
	groups := make([][]string, workerCount)
	if len(urls) == 0 || workerCount <= 0 {
		return groups
	}

	order := sortedOrder(urls)
	for k, origIdx := range order {
		w := k % workerCount
		groups[w] = append(groups[w], urls[origIdx])
	}
	return groups
}

// assignWorkers mirrors Distribute's sort-then-deal algorithm but
// returns, for each url at its original index, the worker index it
// was dealt to, which is what TaskManager.SubmitBatch needs to enqueue each
// URL while still returning task ids in input order.
func assignWorkers(urls []string, workerCount int) []int {
	assignment := make([]int, len(urls))
	if workerCount <= 0 {
		return assignment
	}
	order := sortedOrder(urls)
	for k, origIdx := range order {
		assignment[origIdx] = k % workerCount
	}
	return assignment
}

// sortedOrder returns a permutation of 0..len(urls)-1 sorted by
// registrable host, then by the full URL as a tiebreaker so the
// ordering is fully deterministic for repeated hosts.
func sortedOrder(urls []string) []int {
	order := make([]int, len(urls))
	hosts := make([]string, len(urls))
	for i, u := range urls {
		order[i] = i
		hosts[i] = registrableHost(u)
	}

	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if hosts[ia] != hosts[ib] {
			return hosts[ia] < hosts[ib]
		}
		return urls[ia] < urls[ib]
	})
	return order
}

// registrableHost extracts the lower-cased hostname from a URL for
// clustering purposes. It deliberately doesn't attempt full public-
// suffix-list registrable-domain logic; the host as parsed is enough
// to cluster requests against the same server.
func registrableHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return emptyHostKey
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return emptyHostKey
	}
	return host
}
