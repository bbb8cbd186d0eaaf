package geo

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/example/ridematch/internal/trip/domain"
)

// kmPerDegree approximates one degree of latitude. Used only to size the
// R-tree search window; exact distances come from haversine.
const kmPerDegree = 110.574

// indexEntry is the unit stored in the R-tree. Entries are replaced, never
// mutated, because the tree locates them by their bounding box.
type indexEntry struct {
	driverID int64
	set      domain.DriverSet
	pos      domain.GeoPoint
}

func (e *indexEntry) Bounds() rtreego.Rect {
	return rtreego.Point{e.pos.Lat, e.pos.Lng}.ToRect(1e-7)
}

// MemoryDriverIndex implements domain.DriverIndex in process, backed by one
// R-tree per availability set. It serves tests and single-node runs where no
// Redis is configured.
type MemoryDriverIndex struct {
	mu      sync.RWMutex
	members map[int64]*indexEntry
	trees   map[domain.DriverSet]*rtreego.Rtree
}

// NewMemoryDriverIndex constructs an empty index.
func NewMemoryDriverIndex() *MemoryDriverIndex {
	return &MemoryDriverIndex{
		members: make(map[int64]*indexEntry),
		trees: map[domain.DriverSet]*rtreego.Rtree{
			domain.SetFree:   rtreego.NewTree(2, 25, 50),
			domain.SetInTrip: rtreego.NewTree(2, 25, 50),
		},
	}
}

// AddFree upserts the driver into the free set, evicting it from in-trip.
func (m *MemoryDriverIndex) AddFree(_ context.Context, driverID int64, pos domain.GeoPoint) error {
	m.upsert(driverID, domain.SetFree, pos)
	return nil
}

// AddInTrip upserts the driver into the in-trip set, evicting it from free.
func (m *MemoryDriverIndex) AddInTrip(_ context.Context, driverID int64, pos domain.GeoPoint) error {
	m.upsert(driverID, domain.SetInTrip, pos)
	return nil
}

func (m *MemoryDriverIndex) upsert(driverID int64, set domain.DriverSet, pos domain.GeoPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.members[driverID]; ok {
		m.trees[existing.set].Delete(existing)
	}
	entry := &indexEntry{driverID: driverID, set: set, pos: pos}
	m.trees[set].Insert(entry)
	m.members[driverID] = entry
}

// Remove drops the driver from the given set; absent members are a no-op.
func (m *MemoryDriverIndex) Remove(_ context.Context, set domain.DriverSet, driverID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.members[driverID]
	if !ok || entry.set != set {
		return nil
	}
	m.trees[set].Delete(entry)
	delete(m.members, driverID)
	return nil
}

// Position returns the driver's coordinate within the set.
func (m *MemoryDriverIndex) Position(_ context.Context, set domain.DriverSet, driverID int64) (domain.GeoPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.members[driverID]
	if !ok || entry.set != set {
		return domain.GeoPoint{}, domain.ErrDriverPositionUnavailable
	}
	return entry.pos, nil
}

// RadiusQuery searches a bounding window in the set's R-tree, then filters
// and ranks by exact haversine distance.
func (m *MemoryDriverIndex) RadiusQuery(_ context.Context, set domain.DriverSet, center domain.GeoPoint, radiusKM float64, limit int) ([]domain.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Window slightly wider than the radius; longitude degrees shrink with
	// latitude so the window over-covers and haversine trims the excess.
	tol := radiusKM / kmPerDegree
	if cosLat := math.Cos(center.Lat * math.Pi / 180); cosLat > 0.01 {
		tol /= cosLat
	}
	window := rtreego.Point{center.Lat, center.Lng}.ToRect(tol)

	var candidates []domain.Candidate
	for _, spatial := range m.trees[set].SearchIntersect(window) {
		entry := spatial.(*indexEntry)
		dist := HaversineKM(center, entry.pos)
		if dist <= radiusKM {
			candidates = append(candidates, domain.Candidate{DriverID: entry.driverID, DistanceKM: dist})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DistanceKM < candidates[j].DistanceKM
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// HaversineKM returns the great-circle distance between two points in km.
func HaversineKM(a, b domain.GeoPoint) float64 {
	const earthRadiusKM = 6371.0
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}
