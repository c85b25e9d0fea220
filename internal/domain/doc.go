// Package domain models time-stepped weather raster frames and the data that
// flows between the decode, composite, and playback stages.
//
// # Data Source
//
// Frames are GK-2A AMI level-2 products (shortwave radiation, cloud mask)
// preprocessed into 8-bit GeoTIFFs, one file per 10 minute step. A day holds
// 144 frames. File names follow a fixed template:
//
//	<prefix><YYYYMMDD><HHMM><suffix>  →  e.g. "swrad_202407070050_jet.tif"
//
// where HHMM is index*10 minutes past midnight (KST). See [Namer].
//
// # Georeferencing
//
// A frame either carries geographic bounds (west, south, east, north) in the
// display CRS, or an affine grid in a projected CRS plus the CRS pair needed to
// reach the display CRS. The native GK-2A grid is Lambert Conformal Conic:
//
//	+proj=lcc +lat_1=30 +lat_2=60 +lat_0=38 +lon_0=126 +ellps=WGS84 +units=m
//	900 x 900 pixels, 2000 m pixel size, upper-left (-899000, 899000)
//
// Affine grids are anchored at the lower-left pixel center. Row 0 is the top
// of the image, so northing decreases as row increases:
//
//	easting  = originEasting  + col * pixelSize
//	northing = originNorthing + (height - 1 - row) * pixelSize
//
// # Pixel Conventions
//
// Imagery is 3-band RGB (optionally 4-band RGBA). Near-black pixels (all bands
// at or below a small threshold, default 1) are treated as background and made
// transparent when compositing.
//
// Cloud-mask rasters are single-band categorical grids: 0 = cloud (high
// confidence), 1 = cloud (low confidence), 2 = clear, 255 = fill. The mapping
// from category to heatmap weight is configuration, not a constant.
package domain
