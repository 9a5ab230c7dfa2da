// Package security derives a posture report from engine settings. The root
// package exposes it as inkauth.SecurityReport so operators can log or
// export it at startup.
package security
