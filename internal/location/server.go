package location

import (
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/example/ridematch/internal/trip/domain"
)

// Server ingests streamed driver locations into the availability index.
type Server struct {
	avail  *Availability
	logger *zap.Logger
}

// NewServer constructs a server.
func NewServer(avail *Availability, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{avail: avail, logger: logger}
}

// StreamLocation applies each update to the driver index. Bad driver ids
// are skipped; index failures are logged but do not tear the stream down.
func (s *Server) StreamLocation(stream Location_StreamLocationServer) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&Ack{})
		}
		if err != nil {
			return err
		}
		driverID, err := strconv.ParseInt(msg.DriverId, 10, 64)
		if err != nil {
			s.logger.Warn("skipping update with bad driver id", zap.String("driver_id", msg.DriverId))
			continue
		}
		pos := domain.GeoPoint{Lat: msg.Lat, Lng: msg.Lng}
		if err := s.avail.UpdateLocation(stream.Context(), driverID, pos); err != nil {
			s.logger.Warn("location update failed", zap.Int64("driver_id", driverID), zap.Error(err))
		}
	}
}
