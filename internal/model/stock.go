package model

import "time"

// ProductStock is the last-known server stock level for a product.
type ProductStock struct {
	ProductoID string `json:"productoId"`
	Nombre     string `json:"nombre,omitempty"`
	Stock      int    `json:"stock"`
}

// StockSnapshotEntry records, for one product at enqueue time, the
// server-known stock, what other still-pending queued orders already
// reserve, and the resulting local availability.
type StockSnapshotEntry struct {
	ProductoID       string `json:"productoId"`
	Nombre           string `json:"nombre,omitempty"`
	StockAlMomento   int    `json:"stockAlMomento"`
	ReservadoOffline int    `json:"reservadoOffline"`
	Disponible       int    `json:"disponible"`
}

// StockSnapshot is the point-in-time availability estimate attached to a
// queued order. Advisory only: the remote atomic procedure performs the
// authoritative stock check when the operation is actually replayed.
type StockSnapshot struct {
	TomadoEn time.Time            `json:"tomadoEn"`
	Items    []StockSnapshotEntry `json:"items"`
}

// ItemSinStock describes one rejected order line: the quantity asked for
// and what was locally available.
type ItemSinStock struct {
	ProductoID string `json:"productoId"`
	Nombre     string `json:"nombre,omitempty"`
	Solicitado int    `json:"solicitado"`
	Disponible int    `json:"disponible"`
}
