// Package sphere provides direction grids on the unit sphere.
//
// A [Grid] holds measurement or reproduction directions together with
// per-point integration weights, and offers nearest-direction lookup and
// 3-point amplitude-panning interpolation gains (VBAP) used for HRTF
// interpolation. Directions use degrees, azimuth counter-clockwise from the
// front and elevation upwards from the horizontal plane.
package sphere
