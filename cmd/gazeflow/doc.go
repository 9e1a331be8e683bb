// Command gazeflow runs stream sets, drives calibration and validation,
// and works with recordings offline.
//
//	gazeflow run -f streams.yaml --http
//	gazeflow calibrate -f streams.yaml --stream world --collect 10s
//	gazeflow recordings --root recordings
//	gazeflow markers --dir recordings/2026-10-18_09-30-00_1a2b3c4d --name world
package main
