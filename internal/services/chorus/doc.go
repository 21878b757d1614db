// Package chorus wraps the external chorus-detect tool that locates the most
// repeated section of a song and renders it as a clip.
package chorus
