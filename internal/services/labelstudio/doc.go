// Package labelstudio triggers import-storage syncs on a Label Studio
// project after new images land in the object store.
package labelstudio
