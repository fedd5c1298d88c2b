// Package media names the media kinds the worker assembles and maps a
// recording session onto the storage tree.
//
// Input fragments live under archivos_grabados/{expediente}/{sesion}/{audios|videos|videos2}
// and finished artifacts under archivos/{expediente}/{sesion}/{audios|videos}.
// Every path the pipeline touches is derived here so sessions stay namespaced
// by directory and never collide.
package media
