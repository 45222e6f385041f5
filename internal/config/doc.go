/*
Package config defines the blueprintfs process configuration and its
loading order.

Sources merge with later ones winning:

	defaults  →  YAML file  →  BLUEPRINTFS_* environment  →  flags

The command binary owns the flag layer; this package owns the rest.
Validate checks the merged result once, before any component is built: the
store root and mount point must be absolute and disjoint, collection and
viewport must be single clean segments, the viewport must be hidden, the
marker must be a clean relative path, and every configured template needs a
valid name and inherit mode.

A minimal configuration file:

	store:
	  root: /srv/projects-store
	mount:
	  point: /mnt/projects
	templates:
	  root: /etc/blueprintfs/templates
	  use:
	    - name: departments
	    - name: compliance
	      mode: fixed
*/
package config
